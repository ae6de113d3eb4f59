package api

import "strconv"

// rejection is what a wallet returns when the user declines to sign
type rejection struct{}

func (r *rejection) Error() string  { return "User rejected the request." }
func (r *rejection) ErrorCode() int { return 4001 }

func itoa(v int) string {
	return strconv.Itoa(v)
}
