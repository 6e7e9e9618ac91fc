// Package models holds the persisted data types for the diff runner.
package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the minimal account record a Session belongs to. Account
// management itself lives outside this service, and nothing in this
// service checks session ownership against it.
type User struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	Username string `json:"username" gorm:"uniqueIndex;not null"`
}

// CodeBlob is an immutable unit of source code supplied for a session:
// the user solution, the reference solution, or the input generator.
type CodeBlob struct {
	Language string `json:"language"` // "c" or "cpp"
	Standard string `json:"standard"` // e.g. "c++17"
	Content  string `json:"content"`
}

// Session owns the three code blobs that a diff run judges against each
// other, plus the ordered TestCases accumulated across runs.
type Session struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	UserID uint `json:"user_id" gorm:"index;not null"`
	User   User `json:"-" gorm:"foreignKey:UserID"`

	UserCode CodeBlob `json:"user_code" gorm:"embedded;embeddedPrefix:user_"`
	StdCode  CodeBlob `json:"std_code" gorm:"embedded;embeddedPrefix:std_"`
	GenCode  CodeBlob `json:"gen_code" gorm:"embedded;embeddedPrefix:gen_"`
	HasGen   bool     `json:"has_gen"`

	TestCases []TestCase `json:"-" gorm:"foreignKey:SessionID"`
}

// TestCase is one judged test case: input, both programs' outputs, verdict,
// and resource usage of the user program. Mutated only during its own
// iteration of the Controller's loop; durable thereafter.
type TestCase struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	SessionID uint      `json:"session_id" gorm:"index;not null"`
	CreatedAt time.Time `json:"created_at"`

	InputData  string `json:"input_data" gorm:"type:text"`
	UserOutput string `json:"user_output" gorm:"type:text"`
	StdOutput  string `json:"std_output" gorm:"type:text"`

	Status string `json:"status"` // OK, WA, "User TLE", "Std RE(SIGSEGV)", "Checker PE", ...
	Detail string `json:"detail"`

	TimeUsedMs    int64 `json:"time_used_ms"`
	MemoryUsedMiB int64 `json:"memory_used_mib"`
}

// Tables returns every model AutoMigrate needs, in dependency order.
func Tables() []interface{} {
	return []interface{}{&User{}, &Session{}, &TestCase{}}
}
