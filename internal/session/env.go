package session

import "os"

// Environment variables that override the keyring session.
const (
	EnvUserID = "GOSYNCMOVIES_USER_ID"
	EnvToken  = "GOSYNCMOVIES_TOKEN"
)

func envUserID() string {
	return os.Getenv(EnvUserID)
}

func envToken() string {
	return os.Getenv(EnvToken)
}
