package taskname

const (
	// Licence tasks
	LicenceNotify = "licence:notify"
)
