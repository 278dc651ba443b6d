package models

// Group is a notification group (a platform role) used to address an event's interested members.
type Group struct {
	ID          string
	Name        string
	Position    int // Authority rank on the platform; higher outranks lower
	Color       int
	Mentionable bool
}

// GroupSpec describes a group to create.
type GroupSpec struct {
	Name        string
	Color       int
	Mentionable bool
	Reason      string // Audit-log reason recorded by the platform
}
