package inventory

type ReservationStatus string

const (
	StatusReserved  ReservationStatus = "reserved"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusCancelled ReservationStatus = "cancelled"
	StatusExpired   ReservationStatus = "expired"
)

// a reservation leaves reserved exactly once and never comes back
var validNext = map[ReservationStatus]map[ReservationStatus]bool{
	StatusReserved:  {StatusConfirmed: true, StatusCancelled: true, StatusExpired: true},
	StatusConfirmed: {},
	StatusCancelled: {},
	StatusExpired:   {},
}

func CanTransition(from, to ReservationStatus) bool {
	return validNext[from][to]
}

func (s ReservationStatus) IsTerminal() bool {
	return s != StatusReserved
}
