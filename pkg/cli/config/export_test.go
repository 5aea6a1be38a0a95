package config

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(signingSecret string) *Slack {
	return &Slack{signingSecret: signingSecret}
}

// NewRepositoryForTest creates a Repository config for testing purposes
func NewRepositoryForTest(backend, url, hostname string, port int, name, credentials string) *Repository {
	return &Repository{
		backend:             backend,
		databaseURL:         url,
		databaseHostname:    hostname,
		databasePort:        port,
		databaseName:        name,
		databaseCredentials: credentials,
	}
}

// NewAppForTest creates an App config for testing purposes
func NewAppForTest(annualCost, hours float64, workers int) *App {
	return &App{
		annualEmployeeCost: annualCost,
		businessYearHours:  hours,
		workerPoolSize:     workers,
	}
}
