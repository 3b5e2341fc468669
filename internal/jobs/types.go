package jobs

type JobType string

const (
	JobSendNotification JobType = "notification.send"
)

// check to see if the job type is a known constant
func (t JobType) IsValid() bool {
	switch t {
	case JobSendNotification:
		return true
	default:
		return false
	}
}
