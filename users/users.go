package users

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/turfbook/turf-client/internal/utils"
	"golang.org/x/crypto/bcrypt"
)

// RoleType is the coarse permission class that gates dashboard routes
type RoleType string

const (
	RoleUser    RoleType = "user"    // Books turfs
	RoleAdmin   RoleType = "admin"   // Manages the whole platform
	RoleManager RoleType = "manager" // Manages the turfs they own
)

// ParseRole converts a raw role string into a RoleType
func ParseRole(role string) (RoleType, error) {
	switch r := RoleType(strings.ToLower(strings.TrimSpace(role))); r {
	case RoleUser, RoleAdmin, RoleManager:
		return r, nil
	}
	return "", fmt.Errorf("unknown role %q", role)
}

func (r RoleType) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

type User struct {
	ID      string   `json:"id"`                // Unique identifier for the user
	Name    string   `json:"name"`              // Display name
	Email   string   `json:"email"`             // User's email address
	Role    RoleType `json:"role"`              // user, admin or manager
	Phone   *string  `json:"phone,omitempty"`   // Contact number
	Address *string  `json:"address,omitempty"` // Postal address
	Photo   *string  `json:"photo,omitempty"`   // Avatar URL
}

// UnmarshalJSON accepts both "id" and the backend's "_id" field.
func (u *User) UnmarshalJSON(data []byte) error {
	type plain User
	var wire struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*u = User(wire.plain)
	if u.ID == "" {
		u.ID = wire.MongoID
	}
	return nil
}

// Clone returns a deep copy so stored identity is never shared with callers
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Phone = utils.ClonePtr(u.Phone)
	c.Address = utils.ClonePtr(u.Address)
	c.Photo = utils.ClonePtr(u.Photo)
	return &c
}

func (u *User) HasRole(role RoleType) bool {
	return u != nil && u.Role == role
}

// DisplayName returns the name, or the email when no name is set
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if strings.TrimSpace(u.Name) != "" {
		return u.Name
	}
	return u.Email
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
