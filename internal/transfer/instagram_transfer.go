package transfer

type InstagramContainerResponse struct {
	ID string `json:"id"`
}

type InstagramContainerStatus struct {
	StatusCode string `json:"status_code"` // IN_PROGRESS, FINISHED, ERROR
	ID         string `json:"id"`
}

type InstagramPublishResponse struct {
	ID string `json:"id"`
}

type InstagramCommentResponse struct {
	ID string `json:"id"`
}

type InstagramRefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type InstagramUserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
