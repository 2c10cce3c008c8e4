package domain

// CommandNameReserve имя команды резервирования места
const CommandNameReserve = "seat.reserve"

// Command намерение вызывающей стороны, еще не проверенное против состояния.
// Набор команд закрыт.
type Command interface {
	// CommandName возвращает имя команды
	CommandName() string
	isCommand()
}

// Reserve запрос на резервирование места Number в ряду Row
type Reserve struct {
	Number uint32 `json:"number"`
	Row    uint32 `json:"row"`
}

// CommandName возвращает имя команды
func (Reserve) CommandName() string {
	return CommandNameReserve
}

func (Reserve) isCommand() {}
