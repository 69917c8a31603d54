package jobs

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"FundFolioSaas/internal/config"
	"FundFolioSaas/internal/logger"
	"FundFolioSaas/internal/registry"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
)

// Config for the scheme registry sync job.
type Config struct {
	SchemeURL  string
	NavURL     string
	Schedule   string
	TimeZone   string
	BatchSize  int
	MaxRetries int
	RetryDelay time.Duration
}

func NewDefaultConfig() *Config {
	return &Config{
		SchemeURL:  config.DefaultSchemeURL,
		NavURL:     config.DefaultNavURL,
		Schedule:   config.DefaultSchemeSchedule,
		TimeZone:   config.DefaultTimeZone,
		BatchSize:  config.BatchSize,
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

func (cfg *Config) applyDefaults() {
	if cfg.SchemeURL == "" {
		cfg.SchemeURL = config.DefaultSchemeURL
	}
	if cfg.NavURL == "" {
		cfg.NavURL = config.DefaultNavURL
	}
	if cfg.Schedule == "" {
		cfg.Schedule = config.DefaultSchemeSchedule
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = config.DefaultTimeZone
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = config.BatchSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
}

// CircuitBreakerState represents the state of circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// CircuitBreaker implements circuit breaker pattern
type CircuitBreaker struct {
	maxFailures  int32
	resetTimeout time.Duration
	failures     int32
	lastFailTime time.Time
	state        CircuitBreakerState
	mutex        sync.RWMutex
}

func NewCircuitBreaker(maxFailures int32, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
	}
}

// Execute runs the function with circuit breaker protection
func (cb *CircuitBreaker) Execute(fn func() error) error {
	cb.mutex.RLock()
	state := cb.state
	cb.mutex.RUnlock()

	if state == StateOpen {
		if time.Since(cb.lastFailTime) > cb.resetTimeout {
			cb.mutex.Lock()
			cb.state = StateHalfOpen
			cb.mutex.Unlock()
		} else {
			return fmt.Errorf("circuit breaker is open")
		}
	}

	err := fn()

	cb.mutex.Lock()
	defer cb.mutex.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()
		if cb.failures >= cb.maxFailures {
			cb.state = StateOpen
		}
		return err
	}

	cb.failures = 0
	cb.state = StateClosed
	return nil
}

// RetryWithBackoff executes a function with exponential backoff retry logic
func RetryWithBackoff(maxRetries int, initialDelay time.Duration, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(math.Pow(2, float64(attempt-1))) * initialDelay
			logger.GlobalLogger.LogAudit(fmt.Sprintf("Retrying after %v (attempt %d/%d)", delay, attempt, maxRetries))
			time.Sleep(delay)
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		logger.GlobalLogger.LogAudit(fmt.Sprintf("Attempt %d failed: %v", attempt+1, lastErr))
	}

	return fmt.Errorf("failed after %d attempts: %v", maxRetries+1, lastErr)
}

// RunSchemeRegistrySync schedules the periodic AMFI download. The job runs
// entirely out-of-band: it stages scheme and NAV feeds into Postgres, then
// swaps the in-memory registry snapshot. In-flight matches keep reading the
// previous snapshot throughout.
func RunSchemeRegistrySync(cfg *Config, db *pgxpool.Pool, reg *registry.Registry) error {
	cfg.applyDefaults()

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return fmt.Errorf("invalid timezone for scheme registry sync: %v", err)
	}

	httpCircuitBreaker := NewCircuitBreaker(5, 30*time.Second)
	dbCircuitBreaker := NewCircuitBreaker(3, 60*time.Second)

	c := cron.New(cron.WithLocation(loc))
	_, err = c.AddFunc(cfg.Schedule, func() {
		logger.GlobalLogger.LogAudit(fmt.Sprintf("Running scheme registry sync at %s", time.Now().In(loc)))

		var wg sync.WaitGroup
		var schemeErr, navErr error

		wg.Add(1)
		go func() {
			defer wg.Done()
			schemeErr = RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
				return syncSchemeMaster(cfg.SchemeURL, db, httpCircuitBreaker, dbCircuitBreaker)
			})
			if schemeErr != nil {
				logger.GlobalLogger.LogAudit(fmt.Sprintf("Scheme master sync failed: %v", schemeErr))
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			navErr = RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
				return syncNAVData(cfg.NavURL, db, httpCircuitBreaker, dbCircuitBreaker)
			})
			if navErr != nil {
				logger.GlobalLogger.LogAudit(fmt.Sprintf("NAV sync failed: %v", navErr))
			}
		}()

		wg.Wait()

		if schemeErr == nil && navErr == nil {
			reloadRegistry(reg)
			logger.GlobalLogger.LogAudit("Scheme registry sync completed at " + time.Now().In(loc).String())
		} else {
			logger.GlobalLogger.LogAudit("Scheme registry sync completed with errors")
		}
	})

	if err != nil {
		return fmt.Errorf("failed to schedule scheme registry sync: %v", err)
	}

	c.Start()
	logger.GlobalLogger.LogAudit("Scheme registry sync scheduled for " + cfg.Schedule + " (" + cfg.TimeZone + ")")
	return nil
}

// RunSchemeRegistrySyncOnce runs one full download + reload without
// scheduling. Backing for the manual refresh endpoint.
func RunSchemeRegistrySyncOnce(cfg *Config, db *pgxpool.Pool, reg *registry.Registry) error {
	cfg.applyDefaults()

	httpCircuitBreaker := NewCircuitBreaker(5, 30*time.Second)
	dbCircuitBreaker := NewCircuitBreaker(3, 60*time.Second)

	err := RetryWithBackoff(cfg.MaxRetries, cfg.RetryDelay, func() error {
		if err := syncSchemeMaster(cfg.SchemeURL, db, httpCircuitBreaker, dbCircuitBreaker); err != nil {
			return err
		}
		return syncNAVData(cfg.NavURL, db, httpCircuitBreaker, dbCircuitBreaker)
	})
	if err != nil {
		return err
	}
	reloadRegistry(reg)
	return nil
}

func reloadRegistry(reg *registry.Registry) {
	if reg == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := reg.Reload(ctx); err != nil {
		logger.GlobalLogger.LogAudit(fmt.Sprintf("Registry snapshot reload failed: %v", err))
		return
	}
	logger.GlobalLogger.LogAudit(fmt.Sprintf("Registry snapshot reloaded: %d schemes", len(reg.Schemes())))
}

func syncSchemeMaster(url string, db *pgxpool.Pool, httpCB, dbCB *CircuitBreaker) error {
	logger.GlobalLogger.LogAudit("Downloading AMFI scheme data from: " + url + " ...")

	var records [][]string

	err := httpCB.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %v", err)
		}
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("error fetching AMFI scheme data: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP error: %d", resp.StatusCode)
		}

		reader := csv.NewReader(resp.Body)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		records, err = reader.ReadAll()
		if err != nil {
			return fmt.Errorf("error parsing AMFI scheme CSV: %v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.GlobalLogger.LogAudit(fmt.Sprintf("Downloaded %d scheme records", len(records)))
	return dbCB.Execute(func() error {
		return stageSchemeMaster(records, db)
	})
}

func stageSchemeMaster(records [][]string, db *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Second)
	defer cancel()

	_, _ = db.Exec(ctx, "DROP TABLE IF EXISTS temp_scheme_staging")
	_, err := db.Exec(ctx, `
		CREATE TEMP TABLE temp_scheme_staging (
			amc_name TEXT,
			scheme_code TEXT,
			scheme_name TEXT,
			isin_div_payout_growth TEXT,
			isin_div_reinvestment TEXT
		)`)
	if err != nil {
		return fmt.Errorf("error creating temp scheme table: %v", err)
	}

	var validRecords [][]interface{}
	for _, rec := range records {
		if len(rec) < 6 {
			continue
		}
		firstField := strings.ToLower(strings.TrimSpace(rec[0]))
		secondField := strings.ToLower(strings.TrimSpace(rec[1]))
		if firstField == "amc name" || secondField == "code" || secondField == "scheme code" ||
			strings.Contains(firstField, "unique") || strings.Contains(secondField, "isin") {
			continue
		}

		amcName := strings.TrimSpace(rec[0])
		code := strings.TrimSpace(rec[1])
		if code == "" || !isNumeric(code) {
			continue
		}
		schemeName := strings.TrimSpace(rec[2])

		// AMFI concatenates both ISINs into one field past column 9
		isinGrowth := ""
		isinReinvest := ""
		if len(rec) > 9 {
			full := strings.TrimSpace(rec[9])
			if len(full) >= 24 {
				isinGrowth = full[:12]
				isinReinvest = full[12:]
			} else if len(full) >= 12 {
				isinGrowth = full[:12]
			}
		}

		validRecords = append(validRecords, []interface{}{
			amcName, code, schemeName, isinGrowth, isinReinvest,
		})
	}

	logger.GlobalLogger.LogAudit(fmt.Sprintf("Filtered to %d valid scheme records for bulk insert", len(validRecords)))

	start := time.Now()
	_, err = db.CopyFrom(ctx, pgx.Identifier{"temp_scheme_staging"},
		[]string{"amc_name", "scheme_code", "scheme_name", "isin_div_payout_growth", "isin_div_reinvestment"},
		pgx.CopyFromRows(validRecords))
	if err != nil {
		return fmt.Errorf("error bulk copying scheme data: %v", err)
	}

	result, err := db.Exec(ctx, `
		INSERT INTO investment.scheme_master
		(scheme_code, amc_name, scheme_name, isin_div_payout_growth, isin_div_reinvestment, file_date)
		SELECT scheme_code::bigint, amc_name, scheme_name,
		       NULLIF(isin_div_payout_growth, ''), NULLIF(isin_div_reinvestment, ''), CURRENT_DATE
		FROM temp_scheme_staging
		WHERE scheme_code ~ '^[0-9]+$'
		ON CONFLICT (scheme_code) DO UPDATE SET
			amc_name = EXCLUDED.amc_name,
			scheme_name = EXCLUDED.scheme_name,
			isin_div_payout_growth = EXCLUDED.isin_div_payout_growth,
			isin_div_reinvestment = EXCLUDED.isin_div_reinvestment,
			file_date = EXCLUDED.file_date`)
	if err != nil {
		return fmt.Errorf("error upserting scheme data: %v", err)
	}

	logger.GlobalLogger.LogAudit(fmt.Sprintf("Scheme upsert completed in %v, %d rows affected", time.Since(start), result.RowsAffected()))

	_, _ = db.Exec(ctx, "DROP TABLE IF EXISTS temp_scheme_staging")
	return nil
}

type navRecord struct {
	SchemeCode string
	NAVValue   string
	NAVDate    *string
}

func syncNAVData(url string, db *pgxpool.Pool, httpCB, dbCB *CircuitBreaker) error {
	logger.GlobalLogger.LogAudit("Downloading AMFI NAV data from: " + url + " ...")

	var navRecords []navRecord

	err := httpCB.Execute(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return fmt.Errorf("error creating request: %v", err)
		}
		client := &http.Client{Timeout: 30 * time.Second}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("error fetching AMFI NAV data: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("HTTP error: %d", resp.StatusCode)
		}

		// NAVAll.txt: semicolon-separated rows, AMC names on their own lines
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.Contains(line, ";") {
				continue
			}
			fields := strings.Split(line, ";")
			if len(fields) < 6 {
				continue
			}
			schemeCode := strings.TrimSpace(fields[0])
			if !isNumeric(schemeCode) {
				continue
			}
			if _, err := strconv.ParseFloat(strings.TrimSpace(fields[4]), 64); err != nil {
				continue
			}
			navRecords = append(navRecords, navRecord{
				SchemeCode: schemeCode,
				NAVValue:   strings.TrimSpace(fields[4]),
				NAVDate:    parseDate(strings.TrimSpace(fields[5])),
			})
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("error reading NAV data: %v", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	logger.GlobalLogger.LogAudit(fmt.Sprintf("Downloaded %d NAV records", len(navRecords)))
	return dbCB.Execute(func() error {
		return stageNAVData(navRecords, db)
	})
}

func stageNAVData(navRecords []navRecord, db *pgxpool.Pool) error {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Second)
	defer cancel()

	_, _ = db.Exec(ctx, "DROP TABLE IF EXISTS temp_nav_staging")
	_, err := db.Exec(ctx, `
		CREATE TEMP TABLE temp_nav_staging (
			scheme_code TEXT,
			nav_value TEXT,
			nav_date DATE
		)`)
	if err != nil {
		return fmt.Errorf("error creating temp nav table: %v", err)
	}

	var validRecords [][]interface{}
	for _, rec := range navRecords {
		if rec.SchemeCode == "" || rec.NAVDate == nil {
			continue
		}
		validRecords = append(validRecords, []interface{}{rec.SchemeCode, rec.NAVValue, rec.NAVDate})
	}

	start := time.Now()
	_, err = db.CopyFrom(ctx, pgx.Identifier{"temp_nav_staging"},
		[]string{"scheme_code", "nav_value", "nav_date"},
		pgx.CopyFromRows(validRecords))
	if err != nil {
		return fmt.Errorf("error bulk copying NAV data: %v", err)
	}

	result, err := db.Exec(ctx, `
		INSERT INTO investment.scheme_nav (scheme_code, nav_value, nav_date)
		SELECT t.scheme_code::bigint, t.nav_value::numeric(18,4), t.nav_date
		FROM temp_nav_staging t
		INNER JOIN investment.scheme_master s ON t.scheme_code::bigint = s.scheme_code
		WHERE t.scheme_code ~ '^[0-9]+$'
		ON CONFLICT (scheme_code, nav_date) DO UPDATE SET
			nav_value = EXCLUDED.nav_value`)
	if err != nil {
		return fmt.Errorf("error upserting NAV data: %v", err)
	}

	logger.GlobalLogger.LogAudit(fmt.Sprintf("NAV upsert completed in %v, %d rows affected", time.Since(start), result.RowsAffected()))

	_, _ = db.Exec(ctx, "DROP TABLE IF EXISTS temp_nav_staging")
	return nil
}

func parseDate(input string) *string {
	if input == "" {
		return nil
	}
	t, err := time.Parse("02-Jan-2006", input)
	if err != nil {
		return nil
	}
	formatted := t.Format("2006-01-02")
	return &formatted
}

// isNumeric checks if a string contains only digits
func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, char := range s {
		if char < '0' || char > '9' {
			return false
		}
	}
	return true
}
