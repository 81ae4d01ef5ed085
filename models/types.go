// ABOUTME: Data models for CRM entities
// ABOUTME: Defines User, Contact, Company, Engagement, Deal, Activity and dashboard structs
package models

import (
	"time"
)

type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// Contact.Company is a denormalized company name, not a foreign key.
type Contact struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Email            string   `json:"email"`
	Phone            string   `json:"phone"`
	Company          string   `json:"company"`
	JobTitle         string   `json:"job_title"`
	Status           string   `json:"status"`
	Lifecycle        string   `json:"lifecycle"`
	FollowUp         string   `json:"follow_up"`
	MeetingDate      string   `json:"meeting_date"`
	CallingTaskDate  string   `json:"calling_task_date"`
	OwnerID          int64    `json:"owner_id"`
	AssignedResource string   `json:"assigned_resource"`
	LinkedIn         string   `json:"linkedin"`
	Timezone         string   `json:"timezone"`
	CompanySize      string   `json:"company_size"`
	ThemeColor       string   `json:"theme_color"`
	PropertyOrder    []string `json:"property_order"`
	Notes            string   `json:"notes"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

type Company struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Size             string `json:"size"`
	Website          string `json:"website"`
	Industry         string `json:"industry"`
	OwnerID          int64  `json:"owner_id"`
	AssignedResource string `json:"assigned_resource"`
	CreatedAt        string `json:"created_at"`
	UpdatedAt        string `json:"updated_at"`
}

// IsVirtual reports whether the company was synthesized from contact rows.
func (c Company) IsVirtual() bool {
	return c.ID < 0
}

type Engagement struct {
	ID          int64      `json:"id"`
	ClientName  string     `json:"client_name"`
	ServiceType string     `json:"service_type"`
	StartDate   string     `json:"start_date"`
	EndDate     string     `json:"end_date"`
	Status      string     `json:"status"`
	OwnerID     int64      `json:"owner_id"`
	Resources   []Resource `json:"resources,omitempty"`
	CreatedAt   string     `json:"created_at"`
	UpdatedAt   string     `json:"updated_at"`
}

// Resource rows belong to exactly one engagement.
type Resource struct {
	ID           int64  `json:"id"`
	EngagementID int64  `json:"engagement_id"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Type         string `json:"type"`
}

type Deal struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Company     string  `json:"company"`
	Value       float64 `json:"value"`
	Stage       string  `json:"stage"`
	Probability int64   `json:"probability"`
	CloseDate   string  `json:"close_date"`
	OwnerID     int64   `json:"owner_id"`
	ContactID   *int64  `json:"contact_id"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// Activity attaches to at most one of a contact, engagement or company.
type Activity struct {
	ID           int64     `json:"id"`
	Type         string    `json:"type"`
	Content      string    `json:"content"`
	Date         string    `json:"date"`
	Completed    bool      `json:"completed"`
	Comments     []Comment `json:"comments"`
	ContactID    *int64    `json:"contact_id"`
	EngagementID *int64    `json:"engagement_id"`
	CompanyID    *int64    `json:"company_id"`
	CreatedAt    string    `json:"created_at"`
}

type Comment struct {
	Author string `json:"author"`
	Text   string `json:"text"`
	Date   string `json:"date"`
}

type DashboardNote struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type DashboardTask struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
	DueDate   string `json:"due_date"`
	CreatedAt string `json:"created_at"`
}

// Config is the process-wide settings bag, stored as settings row 1.
type Config struct {
	ID        int64    `json:"id"`
	Services  []string `json:"services"`
	Timezones []string `json:"timezones"`
	Vendors   []string `json:"vendors"`
}

// Dataset is an owned snapshot of every collection.
type Dataset struct {
	Users          []User          `json:"users"`
	Contacts       []Contact       `json:"contacts"`
	Companies      []Company       `json:"companies"`
	Engagements    []Engagement    `json:"engagements"`
	Deals          []Deal          `json:"deals"`
	Activities     []Activity      `json:"activities"`
	DashboardNotes []DashboardNote `json:"dashboard_notes"`
	DashboardTasks []DashboardTask `json:"dashboard_tasks"`
	Config         Config          `json:"config"`
	LastSaved      *time.Time      `json:"_lastSaved,omitempty"`
}

// User roles.
const (
	RoleAdmin    = "admin"
	RoleStandard = "standard"
)

// Resource types.
const (
	ResourceTypeResource = "resource"
	ResourceTypeVendor   = "vendor"
)

// Contact defaults applied on insert and on migration.
const (
	DefaultContactStatus = "New"
	DefaultLifecycle     = "Lead"
	DefaultThemeColor    = "#4f46e5"
	DefaultOwnerID       = int64(1)
)

// DefaultPropertyOrder is the contact detail field order used when none is stored.
var DefaultPropertyOrder = []string{"email", "phone", "company", "job_title", "linkedin", "timezone", "company_size"}

const (
	StageLead        = "Lead"
	StageQualified   = "Qualified"
	StageProposal    = "Proposal"
	StageNegotiation = "Negotiation"
	StageClosedWon   = "Closed Won"
	StageClosedLost  = "Closed Lost"
)

// Activity types.
const (
	ActivityNote   = "note"
	ActivityTask   = "task"
	ActivityUpdate = "update"
)

// Engagement statuses.
const (
	EngagementActive    = "Active"
	EngagementPlanned   = "Planned"
	EngagementCompleted = "Completed"
)

// DefaultConfig returns the settings used when nothing is stored yet.
func DefaultConfig() Config {
	return Config{
		ID:        1,
		Services:  []string{"Recruitment", "Contract Staffing", "Executive Search", "HR Consulting"},
		Timezones: []string{"UTC", "America/New_York", "America/Chicago", "America/Los_Angeles", "Europe/London", "Asia/Kolkata"},
		Vendors:   []string{},
	}
}

// ApplyDefaults fills contact fields left empty with the documented defaults.
func (c *Contact) ApplyDefaults(ownerID int64) {
	if c.Status == "" {
		c.Status = DefaultContactStatus
	}
	if c.Lifecycle == "" {
		c.Lifecycle = DefaultLifecycle
	}
	if c.OwnerID == 0 {
		c.OwnerID = ownerID
	}
	if c.ThemeColor == "" {
		c.ThemeColor = DefaultThemeColor
	}
	if len(c.PropertyOrder) == 0 {
		c.PropertyOrder = append([]string(nil), DefaultPropertyOrder...)
	}
}
