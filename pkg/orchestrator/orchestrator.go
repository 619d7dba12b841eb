package orchestrator

// Orchestrator bundles the agent registry, router, task manager and
// consensus coordinator over one shared registry.
type Orchestrator struct {
	Agents    *AgentRegistry
	Router    *Router
	Tasks     *TaskManager
	Consensus *Coordinator
}

func New() *Orchestrator {
	agents := NewAgentRegistry()
	router := NewRouter(agents)
	return &Orchestrator{
		Agents:    agents,
		Router:    router,
		Tasks:     NewTaskManager(router),
		Consensus: NewCoordinator(agents, router),
	}
}
