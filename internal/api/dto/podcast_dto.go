package dto

// CreatePodcastResponse is returned after a successful intake.
type CreatePodcastResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// PodcastStatusResponse is the poll endpoint's view of a job. PodcastURL
// and DurationSeconds appear only once the job is completed; Error only
// when it failed.
type PodcastStatusResponse struct {
	JobID           string   `json:"job_id"`
	Status          string   `json:"status"`
	Filename        string   `json:"filename,omitempty"`
	PodcastURL      string   `json:"podcast_url,omitempty"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	Error           string   `json:"error,omitempty"`
	CreatedAt       string   `json:"created_at"`
	UpdatedAt       string   `json:"updated_at"`
}

// ListPodcastsRequest holds the list endpoint's query parameters.
type ListPodcastsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListPodcastsResponse is a page of jobs plus the cursor for the next one.
type ListPodcastsResponse struct {
	Podcasts   []PodcastStatusResponse `json:"podcasts"`
	NextCursor string                  `json:"next_cursor,omitempty"`
}

// CancelPodcastResponse confirms a cancellation.
type CancelPodcastResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// RescueResult mirrors one job's outcome in the sweep response.
type RescueResult struct {
	JobID   string `json:"job_id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RescueResponse is the admin sweep summary.
type RescueResponse struct {
	Message string         `json:"message"`
	Results []RescueResult `json:"results"`
}
