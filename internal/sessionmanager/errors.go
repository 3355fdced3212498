package sessionmanager

// sessionAlreadyConnectedError mirrors session.DroneAlreadyConnectedError
// for the case where ConnectDrone finds an already-connected entry without
// having to construct a Session first.
type sessionAlreadyConnectedError struct{}

func (e *sessionAlreadyConnectedError) Error() string { return "drone already connected" }
func (e *sessionAlreadyConnectedError) Kind() string  { return "DroneAlreadyConnected" }

// sessionNotFoundError is returned by operations addressing a connection
// string with no registered session.
type sessionNotFoundError struct{}

func (e *sessionNotFoundError) Error() string { return "no session for connection string" }
func (e *sessionNotFoundError) Kind() string  { return "DroneNotConnected" }
