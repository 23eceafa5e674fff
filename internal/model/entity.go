package model

import (
	"time"
)

// User mirror of the host LMS account (provisioned externally)
type User struct {
	ID    int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Email string `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Name  string `gorm:"type:varchar(100);not null" json:"name"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}

// CourseMember course enrollment mirror; ADMIN role grants implicit access
// to every whiteboard in the course
type CourseMember struct {
	CourseID int64  `gorm:"primaryKey" json:"course_id"`
	UserID   int64  `gorm:"primaryKey" json:"user_id"`
	Role     string `gorm:"type:varchar(20);default:'STUDENT'" json:"role"` // ADMIN, STUDENT

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (CourseMember) TableName() string {
	return "course_members"
}

// Whiteboard the shared canvas document
type Whiteboard struct {
	ID           int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	CourseID     int64   `gorm:"not null;index" json:"course_id"`
	Title        string  `gorm:"type:varchar(200);not null" json:"title"`
	ImageURL     *string `gorm:"type:text" json:"image_url,omitempty"`
	ThumbnailURL *string `gorm:"type:text" json:"thumbnail_url,omitempty"`
	// Soft-deletion marker; deleted boards stay recoverable by admins.
	Deleted bool `gorm:"default:false" json:"deleted"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Members  []WhiteboardMember  `gorm:"foreignKey:WhiteboardID" json:"members,omitempty"`
	Elements []WhiteboardElement `gorm:"foreignKey:WhiteboardID" json:"elements,omitempty"`
}

func (Whiteboard) TableName() string {
	return "whiteboards"
}

// WhiteboardMember board membership; defines who may open a connection
type WhiteboardMember struct {
	WhiteboardID int64     `gorm:"primaryKey" json:"whiteboard_id"`
	UserID       int64     `gorm:"primaryKey" json:"user_id"`
	AddedAt      time.Time `gorm:"autoCreateTime" json:"added_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (WhiteboardMember) TableName() string {
	return "whiteboard_members"
}

// WhiteboardElement one visual object on a board. ElementID is client-assigned
// and unique within the board; Layer establishes back-to-front draw order.
type WhiteboardElement struct {
	ID           int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WhiteboardID int64  `gorm:"not null;uniqueIndex:idx_board_element,priority:1" json:"whiteboard_id"`
	ElementID    string `gorm:"type:varchar(100);not null;uniqueIndex:idx_board_element,priority:2" json:"element_id"`
	Type         string `gorm:"type:varchar(50);not null" json:"type"`
	Layer        int    `gorm:"not null;default:0" json:"layer"`
	// AssetID references reused library content, when the element is one.
	AssetID *int64 `gorm:"index" json:"asset_id,omitempty"`
	// Data is the opaque serialized payload (shape/position/style).
	Data string `gorm:"type:jsonb;not null" json:"data"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (WhiteboardElement) TableName() string {
	return "whiteboard_elements"
}

// WhiteboardSession one live connection to one board by one user. Ephemeral:
// purged in bulk at process startup.
type WhiteboardSession struct {
	ConnectionID string    `gorm:"primaryKey;type:varchar(64)" json:"connection_id"`
	WhiteboardID int64     `gorm:"not null;index" json:"whiteboard_id"`
	UserID       int64     `gorm:"not null" json:"user_id"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (WhiteboardSession) TableName() string {
	return "whiteboard_sessions"
}

// ChatMessage append-only board chat; no edit or delete
type ChatMessage struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	WhiteboardID int64     `gorm:"not null;index" json:"whiteboard_id"`
	UserID       int64     `gorm:"not null" json:"user_id"`
	Body         string    `gorm:"type:text;not null" json:"body"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// Preview generation states for library assets
const (
	PreviewStatusPending = "pending"
	PreviewStatusDone    = "done"
	PreviewStatusError   = "error"
)

// LibraryAsset asset-library artifact; owned by the external library
// collaborator but written by the Export Coordinator
type LibraryAsset struct {
	ID            int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Title         string  `gorm:"type:varchar(200);not null" json:"title"`
	Description   *string `gorm:"type:text" json:"description,omitempty"`
	ImageURL      *string `gorm:"type:text" json:"image_url,omitempty"`
	ThumbnailURL  *string `gorm:"type:text" json:"thumbnail_url,omitempty"`
	ThumbWidth    *int    `json:"thumb_width,omitempty"`
	PreviewStatus string  `gorm:"type:varchar(20);default:'pending'" json:"preview_status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`

	// Relations
	Elements []LibraryAssetElement `gorm:"foreignKey:AssetID" json:"elements,omitempty"`
}

func (LibraryAsset) TableName() string {
	return "library_assets"
}

// LibraryAssetElement frozen element snapshot taken at export time.
// RefAssetID keeps the element's original backing-asset reference, distinct
// from AssetID which links the snapshot row to its owning exported asset.
type LibraryAssetElement struct {
	ID         int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	AssetID    int64  `gorm:"not null;index" json:"asset_id"`
	ElementID  string `gorm:"type:varchar(100);not null" json:"element_id"`
	Type       string `gorm:"type:varchar(50);not null" json:"type"`
	Layer      int    `gorm:"not null;default:0" json:"layer"`
	RefAssetID *int64 `json:"ref_asset_id,omitempty"`
	Data       string `gorm:"type:jsonb;not null" json:"data"`
}

func (LibraryAssetElement) TableName() string {
	return "library_asset_elements"
}

// LibraryCategory asset-library category (CRUD lives in the external library)
type LibraryCategory struct {
	ID   int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"type:varchar(100);not null" json:"name"`
}

func (LibraryCategory) TableName() string {
	return "library_categories"
}

// LibraryAssetCategory asset-to-category mapping
type LibraryAssetCategory struct {
	AssetID    int64 `gorm:"primaryKey" json:"asset_id"`
	CategoryID int64 `gorm:"primaryKey" json:"category_id"`
}

func (LibraryAssetCategory) TableName() string {
	return "library_asset_categories"
}
