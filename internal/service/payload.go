package service

// eventPayload is the shared decode target for all webhook payloads. Only
// identifiers and discriminants are read from it: entity state is always
// re-fetched from the upstream API, because payload fields can race with more
// recent mutations.
type eventPayload struct {
	Action string `json:"action"`

	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`

	PullRequest struct {
		ID     int64 `json:"id"`
		Number int   `json:"number"`
	} `json:"pull_request"`

	// Issue appears on issue_comment events. Comments on pull requests carry
	// a pull_request marker object.
	Issue struct {
		Number      int `json:"number"`
		PullRequest *struct {
			URL string `json:"url"`
		} `json:"pull_request"`
	} `json:"issue"`

	Comment struct {
		ID                  int64  `json:"id"`
		Body                string `json:"body"`
		PullRequestReviewID int64  `json:"pull_request_review_id"`
	} `json:"comment"`

	Review struct {
		ID    int64  `json:"id"`
		State string `json:"state"`
	} `json:"review"`

	// SHA appears on status events.
	SHA string `json:"sha"`

	CheckSuite struct {
		HeadSHA      string `json:"head_sha"`
		PullRequests []struct {
			Number int `json:"number"`
		} `json:"pull_requests"`
	} `json:"check_suite"`
}
