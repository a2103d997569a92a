// Package tables holds the declarative registry of managed log tables.
//
// The archive engine is table-agnostic: everything it needs to know about a
// table (archive twin, time column, duplicate key, column list) lives here.
// Adding a table means adding a registry entry, not editing the engine.
package tables

import (
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the fixed-width string encoding used by the activity and
// transaction time columns. Constant width makes string comparison equivalent
// to chronological comparison.
const TimeLayout = "20060102150405"

// Table names known to the system.
const (
	Activities          = "dsiactivities"
	TransactionLog      = "dsitransactionlog"
	ActivitiesArchive   = "dsiactivitiesarchive"
	TransactionArchive  = "dsitransactionlogarchive"
)

// Table describes one managed main table and its archive twin.
type Table struct {
	Name         string
	ArchiveName  string
	TimeColumn   string
	PrimaryKey   string   // column used to scope limited deletes
	DuplicateKey []string // natural key probed against the archive
	Columns      []string // explicit column list for archive inserts
}

var activitiesColumns = []string{
	"ActivityID", "ActivityType", "TrackingID", "SecondaryTrackingID",
	"AgentName", "ThreadID", "Description", "PostedTime", "PostedTimeUTC",
	"LineNumber", "FileName", "MethodName", "ServerName", "InstanceID",
	"IdenticalAlertCount", "AlertLevel", "DismissedBy", "DismissedDateTime",
	"LastIdenticalAlertDateTime", "EventID", "DefaultDescription", "ExceptionMessage",
}

var transactionColumns = []string{
	"RecordStatus", "ProcessMethod", "TransactionType", "ServerName", "DeviceID",
	"UserID", "DeviceLocalTime", "DeviceUTCTime", "DeviceSequenceID", "WhenReceived",
	"WhenProcessed", "WhenExtracted", "ElapsedTime", "AppID", "AppVersion", "AppItemID",
	"WorldHostID", "ConnectorID", "FunctionDefVersion", "FunctionCallID", "FunctionCallRC",
	"DataIn", "DataOut", "ErrorsOut", "SecurityID", "GUID", "UnitID", "PromotionLevelID",
	"EnvironmentID", "Marking", "OrgUnitID", "TrackingReference",
}

var registry = map[string]Table{
	Activities: {
		Name:         Activities,
		ArchiveName:  ActivitiesArchive,
		TimeColumn:   "PostedTime",
		PrimaryKey:   "ActivityID",
		DuplicateKey: []string{"ActivityID", "PostedTime"},
		Columns:      activitiesColumns,
	},
	TransactionLog: {
		Name:         TransactionLog,
		ArchiveName:  TransactionArchive,
		TimeColumn:   "WhenReceived",
		PrimaryKey:   "GUID",
		DuplicateKey: []string{"GUID"},
		Columns:      transactionColumns,
	},
}

// archiveIndex maps archive table names back to their main table.
var archiveIndex = func() map[string]string {
	idx := make(map[string]string, len(registry))
	for name, t := range registry {
		idx[t.ArchiveName] = name
	}
	return idx
}()

// Lookup returns the registry entry for a main table name.
func Lookup(name string) (Table, error) {
	t, ok := registry[name]
	if !ok {
		return Table{}, fmt.Errorf("unknown table %q (valid: %s)", name, strings.Join(MainNames(), ", "))
	}
	return t, nil
}

// LookupAny resolves either a main or an archive table name to its entry.
func LookupAny(name string) (Table, error) {
	if t, ok := registry[name]; ok {
		return t, nil
	}
	if main, ok := archiveIndex[name]; ok {
		return registry[main], nil
	}
	return Table{}, fmt.Errorf("unknown table %q", name)
}

// IsArchive reports whether name is one of the known archive tables.
func IsArchive(name string) bool {
	_, ok := archiveIndex[name]
	return ok
}

// IsMain reports whether name is one of the known main tables.
func IsMain(name string) bool {
	_, ok := registry[name]
	return ok
}

// IsKnown reports whether name is any of the four managed tables.
func IsKnown(name string) bool {
	return IsMain(name) || IsArchive(name)
}

// ArchiveOf returns the archive twin of a main table.
func ArchiveOf(name string) (string, error) {
	t, err := Lookup(name)
	if err != nil {
		return "", err
	}
	return t.ArchiveName, nil
}

// MainOf returns the main table for an archive table name.
func MainOf(archiveName string) (string, error) {
	main, ok := archiveIndex[archiveName]
	if !ok {
		return "", fmt.Errorf("unknown archive table %q", archiveName)
	}
	return main, nil
}

// MainNames returns the main table names in a stable order.
func MainNames() []string {
	return []string{Activities, TransactionLog}
}

// AllNames returns all four managed table names, mains first.
func AllNames() []string {
	return []string{Activities, TransactionLog, ActivitiesArchive, TransactionArchive}
}

// TimeColumns returns the set of known time columns, used when rewriting
// raw 14-digit values in query results.
func TimeColumns() map[string]bool {
	return map[string]bool{
		"PostedTime":                 true,
		"PostedTimeUTC":              true,
		"WhenReceived":               true,
		"WhenProcessed":              true,
		"WhenExtracted":              true,
		"DeviceLocalTime":            true,
		"DeviceUTCTime":              true,
		"DismissedDateTime":          true,
		"LastIdenticalAlertDateTime": true,
	}
}

// EncodeTime renders t in the fixed-width column format.
func EncodeTime(t time.Time) string {
	return t.Format(TimeLayout)
}

// DecodeTime parses a fixed-width column value.
func DecodeTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// FormatReadable rewrites a 14-digit column value as "YYYY-MM-DD HH:MM:SS".
// Values that do not parse are returned unchanged.
func FormatReadable(s string) string {
	if len(s) != 14 {
		return s
	}
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return s
	}
	return t.Format("2006-01-02 15:04:05")
}
