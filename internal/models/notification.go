package models

// Notification channels.
const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)

// Notification is a top-match alert addressed to one trainer.
type Notification struct {
	ID            string  `json:"id"`
	RequirementID string  `json:"requirementId"`
	Requirement   string  `json:"requirementTitle"`
	TrainerID     string  `json:"trainerId"`
	TrainerName   string  `json:"trainerName"`
	Email         *string `json:"email,omitempty"`
	Phone         *string `json:"phone,omitempty"`
	Score         float64 `json:"score"`
	Explanation   string  `json:"explanation"`
}

// Delivery reports which channels accepted a notification.
type Delivery struct {
	NotificationID string   `json:"notificationId"`
	Channels       []string `json:"channels"`
	Contacts       []string `json:"contacts"`
}
