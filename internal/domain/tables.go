package domain

var Tables = []interface{}{
	&WaSession{},
	&WaContact{},
	&WaMessage{},
}
