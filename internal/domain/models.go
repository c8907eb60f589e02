// Package domain defines the persistence models for listings, agreements,
// the transaction ledger, conversations and notifications. These types are
// mapped with GORM and form the core data layer of the exchange backend.
package domain

import (
	"time"
)

// Listing intents.
const (
	IntentGive    = "give"
	IntentSwap    = "swap"
	IntentSell    = "sell"
	IntentRequest = "request"
	IntentRehome  = "rehome"
)

// Listing statuses.
const (
	ListingActive    = "active"
	ListingPending   = "pending"
	ListingCompleted = "completed"
	ListingExpired   = "expired"
	ListingRemoved   = "removed"
)

// Agreement statuses.
const (
	AgreementPending   = "pending"
	AgreementAccepted  = "accepted"
	AgreementDeclined  = "declined"
	AgreementWithdrawn = "withdrawn"
)

// Intents lists every accepted listing intent.
var Intents = []string{IntentGive, IntentSwap, IntentSell, IntentRequest, IntentRehome}

// ListingStatuses lists every listing status.
var ListingStatuses = []string{ListingActive, ListingPending, ListingCompleted, ListingExpired, ListingRemoved}

// ValidIntent reports whether s is a known listing intent.
func ValidIntent(s string) bool { return contains(Intents, s) }

// ValidListingStatus reports whether s is a known listing status.
func ValidListingStatus(s string) bool { return contains(ListingStatuses, s) }

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}

// Listing is an item or need published by its owner. Listings are never
// physically deleted; "removed" is a terminal status.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - OwnerID: identifier of the publishing user; indexed.
//   - Title / Description: NFC-normalized plain text, stored as written.
//   - Slug: URL-friendly title with a short id suffix.
//   - Intent: give, swap, sell, request or rehome (DB constraint).
//   - Status: lifecycle state (DB constraint).
//   - ExpiresAt: when the system expiry trigger may retire the listing.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type Listing struct {
	ID          string     `json:"id"          gorm:"type:char(36);primaryKey"`
	OwnerID     string     `json:"owner_id"    gorm:"type:varchar(64);not null;index:idx_listing_owner"`
	Title       string     `json:"title"       gorm:"type:varchar(255);not null"`
	Description string     `json:"description" gorm:"type:text;not null;default:''"`
	Slug        string     `json:"slug"        gorm:"type:varchar(300);not null;index"`
	Intent      string     `json:"intent"      gorm:"type:varchar(16);not null;check:intent IN ('give','swap','sell','request','rehome')"`
	Status      string     `json:"status"      gorm:"type:varchar(16);not null;default:'active';index:idx_listing_status,priority:1;check:status IN ('active','pending','completed','expired','removed')"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty" gorm:"index"`
	CreatedAt   time.Time  `json:"created_at"  gorm:"index:idx_listing_status,priority:2"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Listing.
func (Listing) TableName() string { return "listings" }

// Agreement is a proposal by a listing owner to hand the listing to a
// named counterparty.
//
// PendingKey holds "<listing_id>:<counterparty_id>" while the agreement is
// pending and NULL afterwards. The unique index over it is what allows at
// most one pending agreement per (listing, counterparty); NULLs never collide.
type Agreement struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	ListingID      string     `json:"listing_id"      gorm:"type:char(36);not null;index:idx_agreement_listing"`
	ProposerID     string     `json:"proposer_id"     gorm:"type:varchar(64);not null;index"`
	CounterpartyID string     `json:"counterparty_id" gorm:"type:varchar(64);not null;index"`
	ConversationID *string    `json:"conversation_id,omitempty" gorm:"type:char(36)"`
	Status         string     `json:"status"          gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','accepted','declined','withdrawn')"`
	PendingKey     *string    `json:"-"               gorm:"type:varchar(128);uniqueIndex:ux_agreements_pending"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	ResolvedAt     *time.Time `json:"resolved_at,omitempty"`

	Listing Listing `json:"-" gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Agreement.
func (Agreement) TableName() string { return "agreements" }

// Transaction is the immutable record of a completed hand-over. There is at
// most one per listing and one per agreement.
type Transaction struct {
	ID          string    `json:"id"           gorm:"type:char(36);primaryKey"`
	ListingID   string    `json:"listing_id"   gorm:"type:char(36);not null;uniqueIndex:ux_transactions_listing"`
	AgreementID string    `json:"agreement_id" gorm:"type:char(36);not null;uniqueIndex:ux_transactions_agreement"`
	FromParty   string    `json:"from_party"   gorm:"type:varchar(64);not null;index"`
	ToParty     string    `json:"to_party"     gorm:"type:varchar(64);not null;index"`
	CompletedAt time.Time `json:"completed_at" gorm:"not null"`

	Listing Listing `json:"-" gorm:"foreignKey:ListingID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Transaction.
func (Transaction) TableName() string { return "transactions" }

// Conversation is a two-party thread, optionally anchored to a listing.
// ParticipantA is always the lexically smaller id so that PairKey is stable
// for the unordered pair.
type Conversation struct {
	ID             string    `json:"id"               gorm:"type:char(36);primaryKey"`
	ParticipantA   string    `json:"participant_a"    gorm:"type:varchar(64);not null;index"`
	ParticipantB   string    `json:"participant_b"    gorm:"type:varchar(64);not null;index"`
	ListingID      *string   `json:"listing_id,omitempty" gorm:"type:char(36);index"`
	PairKey        string    `json:"-"                gorm:"type:varchar(200);not null;uniqueIndex:ux_conversations_pair"`
	LastActivityAt time.Time `json:"last_activity_at" gorm:"not null;index"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Other returns the participant that is not userID.
func (c Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// HasParticipant reports whether userID is one of the two parties.
func (c Conversation) HasParticipant(userID string) bool {
	return userID != "" && (c.ParticipantA == userID || c.ParticipantB == userID)
}

// ConversationMember carries per-viewer state for a conversation. Hiding is
// a property of the viewer, never of the thread.
type ConversationMember struct {
	ConversationID string     `json:"conversation_id" gorm:"type:char(36);primaryKey"`
	UserID         string     `json:"user_id"         gorm:"type:varchar(64);primaryKey;index"`
	Hidden         bool       `json:"hidden"          gorm:"not null;default:false"`
	HiddenAt       *time.Time `json:"hidden_at,omitempty"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ConversationMember.
func (ConversationMember) TableName() string { return "conversation_members" }

// Message is a single text sent inside a conversation.
//
// Fields:
//   - SenderID / RecipientID: the two participants, recipient derived on send.
//   - Body: NFC-normalized plain text, never empty.
//   - Read / ReadAt: set when the recipient marks the thread read.
type Message struct {
	ID             string     `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string     `json:"conversation_id" gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1"`
	SenderID       string     `json:"sender_id"       gorm:"type:varchar(64);not null"`
	RecipientID    string     `json:"recipient_id"    gorm:"type:varchar(64);not null;index:idx_msgs_unread,priority:1"`
	Body           string     `json:"body"            gorm:"type:text;not null"`
	Read           bool       `json:"read"            gorm:"not null;default:false;index:idx_msgs_unread,priority:2"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"      gorm:"index:idx_conv_msgs,priority:2"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Notification is a persisted, per-recipient record of something another
// party did. Payload is a JSON object serialized as text.
type Notification struct {
	ID          string     `json:"id"           gorm:"type:char(36);primaryKey"`
	RecipientID string     `json:"recipient_id" gorm:"type:varchar(64);not null;index:idx_notif_inbox,priority:1"`
	ActorID     string     `json:"actor_id"     gorm:"type:varchar(64);not null"`
	Type        string     `json:"type"         gorm:"type:varchar(64);not null"`
	Payload     string     `json:"payload"      gorm:"type:text;not null;default:'{}'"`
	Link        string     `json:"link"         gorm:"type:varchar(512);not null;default:''"`
	Read        bool       `json:"read"         gorm:"not null;default:false;index:idx_notif_inbox,priority:2"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"   gorm:"index:idx_notif_inbox,priority:3"`
}

// TableName returns the database table name for Notification.
func (Notification) TableName() string { return "notifications" }
