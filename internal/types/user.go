package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/access"
)

type User struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string         `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password  string         `gorm:"not null;column:password" json:"-"`
	FirstName string         `gorm:"not null;column:first_name" json:"first_name"`
	LastName  string         `gorm:"not null;column:last_name" json:"last_name"`
	Roles     datatypes.JSON `gorm:"column:roles;type:jsonb" json:"roles"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (User) TableName() string {
	return "user"
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) RoleList() []access.Role {
	if len(u.Roles) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(u.Roles, &names); err != nil {
		return nil
	}
	roles := make([]access.Role, 0, len(names))
	for _, name := range names {
		roles = append(roles, access.Role(name))
	}
	return roles
}

func (u *User) HasRole(role access.Role) bool {
	return access.HasRole(u.RoleList(), role)
}

func RolesJSON(roles []access.Role) datatypes.JSON {
	names := make([]string, 0, len(roles))
	for _, role := range roles {
		names = append(names, string(role))
	}
	raw, err := json.Marshal(names)
	if err != nil {
		return datatypes.JSON([]byte("[]"))
	}
	return datatypes.JSON(raw)
}
