package types

type ReadinessStatus string

const (
	ReadinessOK   ReadinessStatus = "ok"
	ReadinessFail ReadinessStatus = "fail"
)

type ReadinessCheck struct {
	ID     string          `json:"id"`
	Status ReadinessStatus `json:"status"`
}

type ReadinessReport struct {
	Status ReadinessStatus  `json:"status"`
	Checks []ReadinessCheck `json:"checks"`
}
