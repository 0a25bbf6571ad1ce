package tree

import (
	"time"

	"github.com/google/uuid"
)

const (
	DefaultGenerator              = "gokdbx"
	DefaultHistoryMaxItems        = 10
	DefaultHistoryMaxSize         = 6 << 20
	DefaultMaintenanceHistoryDays = 365
	RecycleBinName                = "Recycle Bin"
)

// MemoryProtection lists the standard attributes that new entries should protect.
type MemoryProtection struct {
	ProtectTitle    bool
	ProtectUserName bool
	ProtectPassword bool
	ProtectURL      bool
	ProtectNotes    bool
}

// Protects reports whether the standard attribute key should be protected.
func (m MemoryProtection) Protects(key string) bool {
	switch key {
	case KeyTitle:
		return m.ProtectTitle
	case KeyUserName:
		return m.ProtectUserName
	case KeyPassword:
		return m.ProtectPassword
	case KeyURL:
		return m.ProtectURL
	case KeyNotes:
		return m.ProtectNotes
	default:
		return false
	}
}

// CustomIcon is a PNG icon that nodes may reference by UUID.
type CustomIcon struct {
	UUID             uuid.UUID
	Data             []byte
	Name             string
	LastModifiedTime time.Time
}

// MetaData is the database wide configuration stored in the document.
type MetaData struct {
	Generator                  string
	DatabaseName               string
	DatabaseNameChanged        time.Time
	DatabaseDescription        string
	DatabaseDescriptionChanged time.Time
	DefaultUserName            string
	DefaultUserNameChanged     time.Time
	// MaintenanceHistoryDays is the maximum age of history snapshots in days. Zero disables the age limit.
	MaintenanceHistoryDays uint32
	Color                  string
	MasterKeyChanged       time.Time
	// MasterKeyChangeRec and MasterKeyChangeForce are in days, -1 when disabled.
	MasterKeyChangeRec         int64
	MasterKeyChangeForce       int64
	MemoryProtection           MemoryProtection
	CustomIcons                []CustomIcon
	RecycleBinEnabled          bool
	RecycleBinUUID             uuid.UUID
	RecycleBinChanged          time.Time
	EntryTemplatesGroup        uuid.UUID
	EntryTemplatesGroupChanged time.Time
	LastSelectedGroup          uuid.UUID
	LastTopVisibleGroup        uuid.UUID
	// HistoryMaxItems and HistoryMaxSize are negative when unlimited.
	HistoryMaxItems int
	HistoryMaxSize  int64
	SettingsChanged time.Time
	CustomData      CustomData
}

// NewMetaData returns MetaData with the default history policy and the recycle bin enabled.
func NewMetaData(name string) *MetaData {
	now := Now()
	return &MetaData{
		Generator:                  DefaultGenerator,
		DatabaseName:               name,
		DatabaseNameChanged:        now,
		DatabaseDescriptionChanged: now,
		DefaultUserNameChanged:     now,
		MaintenanceHistoryDays:     DefaultMaintenanceHistoryDays,
		MasterKeyChanged:           now,
		MasterKeyChangeRec:         -1,
		MasterKeyChangeForce:       -1,
		MemoryProtection:           MemoryProtection{ProtectPassword: true},
		RecycleBinEnabled:          true,
		RecycleBinChanged:          now,
		EntryTemplatesGroupChanged: now,
		HistoryMaxItems:            DefaultHistoryMaxItems,
		HistoryMaxSize:             DefaultHistoryMaxSize,
		SettingsChanged:            now,
	}
}

// HistoryMaxAge returns the age limit of history snapshots, or zero if there's none.
func (m *MetaData) HistoryMaxAge() time.Duration {
	return time.Duration(m.MaintenanceHistoryDays) * 24 * time.Hour
}

func (m *MetaData) equal(o *MetaData) bool {
	if m.Generator != o.Generator ||
		m.DatabaseName != o.DatabaseName ||
		!m.DatabaseNameChanged.Equal(o.DatabaseNameChanged) ||
		m.DatabaseDescription != o.DatabaseDescription ||
		!m.DatabaseDescriptionChanged.Equal(o.DatabaseDescriptionChanged) ||
		m.DefaultUserName != o.DefaultUserName ||
		!m.DefaultUserNameChanged.Equal(o.DefaultUserNameChanged) ||
		m.MaintenanceHistoryDays != o.MaintenanceHistoryDays ||
		m.Color != o.Color ||
		!m.MasterKeyChanged.Equal(o.MasterKeyChanged) ||
		m.MasterKeyChangeRec != o.MasterKeyChangeRec ||
		m.MasterKeyChangeForce != o.MasterKeyChangeForce ||
		m.MemoryProtection != o.MemoryProtection ||
		m.RecycleBinEnabled != o.RecycleBinEnabled ||
		m.RecycleBinUUID != o.RecycleBinUUID ||
		!m.RecycleBinChanged.Equal(o.RecycleBinChanged) ||
		m.EntryTemplatesGroup != o.EntryTemplatesGroup ||
		!m.EntryTemplatesGroupChanged.Equal(o.EntryTemplatesGroupChanged) ||
		m.LastSelectedGroup != o.LastSelectedGroup ||
		m.LastTopVisibleGroup != o.LastTopVisibleGroup ||
		m.HistoryMaxItems != o.HistoryMaxItems ||
		m.HistoryMaxSize != o.HistoryMaxSize ||
		!m.SettingsChanged.Equal(o.SettingsChanged) ||
		!m.CustomData.Equal(o.CustomData) ||
		len(m.CustomIcons) != len(o.CustomIcons) {
		return false
	}
	for i, ic := range m.CustomIcons {
		oc := o.CustomIcons[i]
		if ic.UUID != oc.UUID || ic.Name != oc.Name || !ic.LastModifiedTime.Equal(oc.LastModifiedTime) || string(ic.Data) != string(oc.Data) {
			return false
		}
	}
	return true
}
