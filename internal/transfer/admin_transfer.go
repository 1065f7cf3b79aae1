package transfer

import "github.com/golang-jwt/jwt/v5"

type AdminClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

type ScheduleUpdate struct {
	Schedule string `json:"schedule"`
}
