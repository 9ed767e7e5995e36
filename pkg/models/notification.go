package models

// NotificationMessage is the queue payload that points the consumer at a
// rendered digest.
type NotificationMessage struct {
	ObjectKey  string `json:"object_key"`
	SenderName string `json:"sender_name"`
	Subject    string `json:"subject"`
	Recipient  string `json:"recipient"`
}
