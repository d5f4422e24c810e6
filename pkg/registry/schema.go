package registry

// TemplateRegistry is the on-disk set of notification templates.
type TemplateRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Templates   []Template `json:"templates"`
}

// Template is a {{placeholder}} template for one delivery channel.
type Template struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}
