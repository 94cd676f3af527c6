package settings

import (
	"fmt"
	"strconv"
)

// Display renders the value the way the device console prints it.
func (s *Setting) Display() string {
	switch v := s.Value.(type) {
	case *Bool:
		if v.Val {
			return "ENABLED"
		}
		return "DISABLED"
	case *Number:
		return strconv.Itoa(int(v.Val))
	case *OneOf:
		return v.Label()
	case *Text:
		return v.Val
	case *Time:
		return v.Val.String()
	case *Date:
		return fmt.Sprintf("%02d-%02d-%04d", v.Val.Day, v.Val.Month, v.Val.Year)
	case *DateTime:
		return fmt.Sprintf("%s %02d-%02d-%04d", v.Time, v.Date.Day, v.Date.Month, v.Date.Year)
	case *Timezone:
		return v.Val
	case *Color:
		return v.Val.Hex()
	default:
		return ""
	}
}
