package api

import (
	"github.com/banshee-data/stagescan/internal/db"
	"github.com/banshee-data/stagescan/internal/export"
	"github.com/banshee-data/stagescan/internal/monitoring"
	"github.com/banshee-data/stagescan/internal/scan"
)

// ResultSink persists completed scans. Its Save method is meant for
// scan.Config.OnResult; every destination is optional.
type ResultSink struct {
	DB       *db.DB
	Archiver *export.Archiver
	Metrics  *monitoring.Metrics
}

// Save writes res to the database and the CSV archive. Failures are logged;
// the scan itself has already completed.
func (rs *ResultSink) Save(res *scan.Result) {
	if rs.DB != nil {
		if err := rs.DB.SaveScan(res); err != nil {
			logf("failed to save scan %s: %v", res.ID, err)
		} else {
			rs.Metrics.ScanSaved()
		}
	}
	if rs.Archiver != nil {
		if _, err := rs.Archiver.Save(res); err != nil {
			logf("failed to archive scan %s: %v", res.ID, err)
		}
	}
}
