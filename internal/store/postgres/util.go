package postgres

import "gorm.io/gorm/clause"

// onConflictUpdateRobot lets a robot re-register (e.g. after a restart)
// without failing on its existing primary key, refreshing its capacity and
// liveness columns in place.
func onConflictUpdateRobot() clause.OnConflict {
	return clause.OnConflict{
		Columns: []clause.Column{{Name: "robot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "environment", "tags", "status", "max_concurrent_jobs",
			"affinity_key", "total_cpu", "total_memory_mb", "last_heartbeat",
		}),
	}
}
