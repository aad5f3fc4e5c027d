package registry

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// --- GORM Models ---

// User represents a management API account.
type User struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null" json:"username"`
	Password  string    `gorm:"not null" json:"-"` // bcrypt hash
	Role      string    `gorm:"default:admin" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// Peer is a directory entry for a known remote: a responder an
// initiator dials, or an initiator endpoint a responder has served.
type Peer struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	Name        string    `json:"name,omitempty"`
	Fingerprint string    `gorm:"uniqueIndex;not null" json:"fingerprint"`
	PublicKey   string    `json:"public_key,omitempty"` // hex, responders only
	Endpoint    string    `json:"endpoint,omitempty"`
	LastSeen    time.Time `json:"last_seen,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// SessionRecord is one session's lifecycle row.
type SessionRecord struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	PeerAddr      string     `gorm:"index" json:"peer_addr"`
	Role          string     `json:"role"`
	EstablishedAt time.Time  `json:"established_at"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	BytesIn       int64      `json:"bytes_in"`
	BytesOut      int64      `json:"bytes_out"`
}

// InitDB opens the database and runs migrations. DSN form:
// "sqlite:///path/to/db".
func InitDB(dsn string) (*gorm.DB, error) {
	var db *gorm.DB
	var err error

	if strings.HasPrefix(dsn, "sqlite://") {
		dbPath := strings.TrimPrefix(dsn, "sqlite://")
		db, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		})
	} else {
		return nil, fmt.Errorf("unsupported database DSN: %s (only sqlite:// supported)", dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&User{}, &Peer{}, &SessionRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return db, nil
}

// TouchPeer upserts a peer row by fingerprint and stamps last-seen.
func TouchPeer(db *gorm.DB, fingerprint, endpoint string) error {
	peer := Peer{
		Fingerprint: fingerprint,
		Endpoint:    endpoint,
		LastSeen:    time.Now(),
	}
	return db.Where("fingerprint = ?", fingerprint).Assign(peer).FirstOrCreate(&peer).Error
}

// OpenSession inserts a lifecycle row for a freshly established session.
func OpenSession(db *gorm.DB, peerAddr, role string) (uint, error) {
	rec := SessionRecord{
		PeerAddr:      peerAddr,
		Role:          role,
		EstablishedAt: time.Now(),
	}
	if err := db.Create(&rec).Error; err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// CloseSession stamps the close time and final byte counts.
func CloseSession(db *gorm.DB, id uint, bytesIn, bytesOut int64) error {
	now := time.Now()
	return db.Model(&SessionRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"closed_at": &now,
		"bytes_in":  bytesIn,
		"bytes_out": bytesOut,
	}).Error
}
