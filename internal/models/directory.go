package models

import (
	"encoding/json"
	"time"
)

// Class represents an academic class as listed by the admin API.
type Class struct {
	ID        FlexibleID `json:"id"`
	Name      string     `json:"name"`
	LevelName string     `json:"levelName,omitempty"`
}

// Subject represents an academic subject.
type Subject struct {
	ID        FlexibleID `json:"id"`
	Name      string     `json:"name"`
	LevelName string     `json:"levelName,omitempty"`
}

// Teacher represents an instructor record.
type Teacher struct {
	ID         string          `json:"id"`
	FirstName  string          `json:"firstName"`
	LastName   string          `json:"lastName"`
	Email      string          `json:"email"`
	NationalID string          `json:"nationalID,omitempty"`
	Image      string          `json:"image,omitempty"`
	Subjects   json.RawMessage `json:"subjects,omitempty"`
}

// Student represents an enrolled student.
type Student struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	LevelName  string `json:"levelName,omitempty"`
	ClassName  string `json:"className,omitempty"`
	ParentName string `json:"parentName,omitempty"`
	ParentID   string `json:"parentId,omitempty"`
	Image      string `json:"image"`
}

// Person is a user account shown in the admin, parent and supervisor lists.
type Person struct {
	ID         string `json:"id"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Name       string `json:"name"`
	Email      string `json:"email"`
	NationalID string `json:"nationalID,omitempty"`
	Image      string `json:"image,omitempty"`
	IsDisabled bool   `json:"isDisabled"`
}

// Event is a school event.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// NewsItem is a news post.
type NewsItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	Image       string `json:"image"`
}

// AdminDataCounts summarises list sizes for dashboards.
type AdminDataCounts struct {
	Classes     int `json:"classes"`
	Teachers    int `json:"teachers"`
	Students    int `json:"students"`
	Admins      int `json:"admins"`
	Parents     int `json:"parents"`
	Supervisors int `json:"supervisors"`
	Events      int `json:"events"`
	News        int `json:"news"`
	Subjects    int `json:"subjects"`
}

// AdminData is the aggregate the admin screens render.
type AdminData struct {
	Classes     []Class         `json:"classes"`
	Teachers    []Teacher       `json:"teachers"`
	Students    []Student       `json:"students"`
	Admins      []Person        `json:"admins"`
	Parents     []Person        `json:"parents"`
	Supervisors []Person        `json:"supervisors"`
	Events      []Event         `json:"events"`
	News        []NewsItem      `json:"news"`
	Subjects    []Subject       `json:"subjects"`
	Counts      AdminDataCounts `json:"counts"`
	Failed      []string        `json:"failed,omitempty"`
	LoadedAt    time.Time       `json:"loadedAt"`
}
