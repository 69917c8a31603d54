package config

import "time"

const (
	DefaultTimeZone       = "Asia/Kolkata"
	DefaultSchemeURL      = "https://portal.amfiindia.com/DownloadSchemeData_Po.aspx?mf=0"
	DefaultNavURL         = "https://www.amfiindia.com/spages/NAVAll.txt"
	DefaultSchemeSchedule = "* 9 * * *"
	BatchSize             = 1000

	// Reconciliation session settings
	DefaultSessionTTL           = 30 * time.Minute
	DefaultSessionCleanerPeriod = 5 * time.Minute

	// Fund-name matcher defaults. The weights are tunable configuration,
	// picked empirically against real AMC disclosure files.
	DefaultSequenceWeight    = 0.50
	DefaultTokenWeight       = 0.30
	DefaultContainmentWeight = 0.15
	DefaultPlanWeight        = 0.05

	DefaultMatchTopK        = 5
	DefaultAutoImportScore  = 0.75
	DefaultAutoImportMargin = 0.10
	DefaultMatchScoreFloor  = 0.35

	// Sheet ingestion / normalization settings
	HeaderScanRows       = 20
	FundNameScanRows     = 10
	SheetSumTolerance    = 0.5
	BatchCorrectionFloor = 150.0
)
