package mechanisms

import gosasl "github.com/emersion/go-sasl"

var (
	usernameChallenge = []byte("Username:")
	passwordChallenge = []byte("Password:")
)

// loginServer is the server half of LOGIN, which go-sasl only implements
// for clients. A client initial response is taken as the username.
type loginServer struct {
	username string
	step     int
	validate func(username string, password []byte) error
}

func (s *loginServer) Next(response []byte) (challenge []byte, done bool, err error) {
	switch s.step {
	case 0:
		s.step++
		if response == nil {
			return usernameChallenge, false, nil
		}
		s.username = string(response)
		s.step++
		return passwordChallenge, false, nil
	case 1:
		s.username = string(response)
		s.step++
		return passwordChallenge, false, nil
	case 2:
		s.step++
		return nil, true, s.validate(s.username, append([]byte(nil), response...))
	default:
		return nil, false, gosasl.ErrUnexpectedClientResponse
	}
}
