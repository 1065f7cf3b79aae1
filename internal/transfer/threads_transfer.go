package transfer

type ThreadsContainerResponse struct {
	ID string `json:"id"`
}

type ThreadsContainerStatus struct {
	Status string `json:"status"` // IN_PROGRESS, FINISHED, ERROR
	ID     string `json:"id"`
}

type ThreadsPublishResponse struct {
	ID string `json:"id"`
}

type ThreadsRefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type ThreadsUserInfo struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}
