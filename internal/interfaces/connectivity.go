package interfaces

// ConnectivityChecker сообщает текущее состояние сети.
type ConnectivityChecker interface {
	CurrentlyOnline() bool
}
