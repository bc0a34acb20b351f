package telegram

import (
	"strconv"

	"github.com/tidwall/gjson"
)

// GuestID stands in for a user that could not be identified. It is never
// a real Telegram id.
const GuestID = "guest"

// ExtractUserID reads user.id from the payload. It does not authorize.
func ExtractUserID(data *InitData) string {
	if data == nil {
		return GuestID
	}
	return UserIDFromJSON(data.Get(FieldUser))
}

// UserIDFromJSON stringifies the integer id member of a JSON user object.
func UserIDFromJSON(user string) string {
	if user == "" || !gjson.Valid(user) {
		return GuestID
	}

	parsed := gjson.Parse(user)
	if !parsed.IsObject() {
		return GuestID
	}

	id := parsed.Get("id")
	if id.Type != gjson.Number {
		return GuestID
	}

	n, err := strconv.ParseInt(id.Raw, 10, 64)
	if err != nil || n <= 0 {
		return GuestID
	}

	return strconv.FormatInt(n, 10)
}
