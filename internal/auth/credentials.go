package auth

import "strings"

// ParseUsers parses a comma-separated list of username:password pairs.
// Pairs missing either side are skipped and later duplicates overwrite
// earlier ones. Passwords may contain ':'; only the first one separates.
func ParseUsers(raw string) map[string]string {
	users := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, password, ok := strings.Cut(pair, ":")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" || password == "" {
			continue
		}
		users[name] = password
	}
	return users
}

func resolveUsers(cfg Config) map[string]string {
	if users := ParseUsers(cfg.Users); len(users) > 0 {
		return users
	}
	name := strings.TrimSpace(cfg.Username)
	if name == "" || cfg.Password == "" {
		return nil
	}
	return map[string]string{name: cfg.Password}
}

// VerifyCredentials reports whether the username exists and the password
// matches. It never fails; empty input is simply a mismatch.
func (s *Service) VerifyCredentials(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	stored, ok := s.users[username]
	if !ok {
		return false
	}
	return passwordMatches(stored, password)
}

// UserCount returns the number of configured users.
func (s *Service) UserCount() int {
	return len(s.users)
}
