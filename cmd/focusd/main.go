// Command focusd streams simulated EEG focus verdicts to WebSocket dashboards.
package main

func main() {
	Execute()
}
