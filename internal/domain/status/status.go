// Package status translates task statuses between the client vocabulary
// exposed by the API and the internal vocabulary used in persistence.
package status

// Client is the status vocabulary used at the API boundary.
type Client string

// Internal is the status vocabulary used by storage.
type Internal string

const (
	Todo       Client = "TODO"
	InProgress Client = "IN_PROGRESS"
	Completed  Client = "COMPLETED"
	Pending    Client = "PENDING"
)

const (
	StoredTodo       Internal = "To Do"
	StoredInProgress Internal = "In Progress"
	StoredCompleted  Internal = "Completed"
	StoredPending    Internal = "Pending"
)

var toInternal = map[Client]Internal{
	Todo:       StoredTodo,
	InProgress: StoredInProgress,
	Completed:  StoredCompleted,
	Pending:    StoredPending,
}

var toClient = map[Internal]Client{
	StoredTodo:       Todo,
	StoredInProgress: InProgress,
	StoredCompleted:  Completed,
	StoredPending:    Pending,
}

// ToInternal never fails: unknown values map to "To Do".
func ToInternal(c Client) Internal {
	if s, ok := toInternal[c]; ok {
		return s
	}
	return StoredTodo
}

// ToClient never fails: unknown values map to TODO.
func ToClient(s Internal) Client {
	if c, ok := toClient[s]; ok {
		return c
	}
	return Todo
}

func (c Client) Valid() bool {
	_, ok := toInternal[c]
	return ok
}

func (s Internal) Valid() bool {
	_, ok := toClient[s]
	return ok
}

// AllClient lists the client statuses in board order.
func AllClient() []Client {
	return []Client{Todo, InProgress, Completed, Pending}
}
