package status

import "time"

// BackupType is the kind of a pgBackRest backup.
type BackupType string

const (
	Full         BackupType = "full"
	Differential BackupType = "diff"
	Incremental  BackupType = "incr"
)

// Status is the stanza health reported by the backup system.
type Status struct {
	Code    int
	Message string
}

// Backup is one entry of the backup history, oldest first.
type Backup struct {
	Label string
	Type  BackupType
	Start time.Time
	Stop  time.Time
}

// ArchiveInfo describes the WAL archive of the current database.
type ArchiveInfo struct {
	ID        string
	Min       string
	Max       string
	DBVersion string
}

// BackupRecord is the parsed status of one stanza.
type BackupRecord struct {
	Name    string
	Status  Status
	Backups []Backup
	Archive ArchiveInfo
}

// Latest returns the most recent backup, if any.
func (r BackupRecord) Latest() (Backup, bool) {
	if len(r.Backups) == 0 {
		return Backup{}, false
	}
	return r.Backups[len(r.Backups)-1], true
}

// Count returns how many backups of type t the record holds.
func (r BackupRecord) Count(t BackupType) int {
	n := 0
	for _, b := range r.Backups {
		if b.Type == t {
			n++
		}
	}
	return n
}
