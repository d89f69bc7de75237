package sqlrealm

import (
	"errors"
	"time"
)

var (
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrDuplicatePrincipal = errors.New("principal already exists")
)

// Principal is a stored credential.
type Principal struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Name         string     `gorm:"uniqueIndex;not null;size:255" json:"name"`
	PasswordHash string     `gorm:"not null" json:"-"`
	Enabled      bool       `gorm:"default:true" json:"enabled"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`

	Delegations []Delegation `gorm:"foreignKey:PrincipalID" json:"delegations,omitempty"`
}

// TableName returns the table name for Principal.
func (Principal) TableName() string {
	return "principals"
}

// Delegation allows a principal to act as another authorization identity.
// ActAs "*" allows any identity.
type Delegation struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	PrincipalID string `gorm:"uniqueIndex:idx_delegation;size:36;not null" json:"-"`
	ActAs       string `gorm:"uniqueIndex:idx_delegation;size:255;not null" json:"act_as"`
}

// TableName returns the table name for Delegation.
func (Delegation) TableName() string {
	return "delegations"
}

// allModels returns the models migrated by Open.
func allModels() []any {
	return []any{&Principal{}, &Delegation{}}
}
