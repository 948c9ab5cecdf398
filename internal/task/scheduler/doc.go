// Package scheduler fires named jobs on cron or interval schedules.
//
// It only triggers. Overlap handling belongs to the job: the poll cycle drops
// a tick while the previous cycle is still running.
package scheduler
