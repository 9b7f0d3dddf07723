package config

type WorkerKeyStruct struct {
	PersistViolationsQueue string
	PersistReportsQueue    string
}

var WorkerKey = &WorkerKeyStruct{
	PersistViolationsQueue: "persist_violations_queue",
	PersistReportsQueue:    "persist_reports_queue",
}
