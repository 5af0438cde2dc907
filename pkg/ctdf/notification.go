package ctdf

type EventNotificationData struct {
	Title   string
	Message string
}
