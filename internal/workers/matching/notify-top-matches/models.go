package notifytopmatches

type Input struct {
	RequirementID string `json:"requirementId"`
}

type Output struct {
	RequirementID    string   `json:"requirementId"`
	NotifiedCount    int      `json:"notifiedCount"`
	NotifiedContacts []string `json:"notifiedContacts"`
	AttemptedCount   int      `json:"attemptedCount"`
	SkippedCount     int      `json:"skippedCount"`
	FailedCount      int      `json:"failedCount"`
}
