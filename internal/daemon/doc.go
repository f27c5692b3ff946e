// Package daemon provides the operating-system primitives the watchdog is
// built from.
//
// # Core Components
//
// 1. Pid files (PidFile)
//   - Atomic write via temp file + rename, so readers never see partial content
//   - Missing file and invalid content are distinct outcomes of Read
//   - Watch wakes waiters as soon as a pid is published
//
// 2. Process table (ProcessTable, System)
//   - Liveness by signal 0, with zombies reported dead
//   - Signal delivery by pid
//
// 3. Port probe (IsPortFree)
//   - A TCP connect to 127.0.0.1; connected means in use
//
// 4. Spawning (Spawner, ShellSpawner)
//   - Runs the managed server command through a shell in its own process group
//   - Streams its output line by line
//
// 5. Singleton enforcement (Singleton)
//   - File lock next to the watchdog pid file
//   - Released by the kernel when the holder dies
//
// # Usage Pattern: Watchdog Singleton
//
//	singleton := daemon.NewSingleton(cfg.WatchdogPidFile)
//	won, err := singleton.Acquire()
//	if err != nil {
//	    return fmt.Errorf("singleton check failed: %w", err)
//	}
//	if !won {
//	    fmt.Println("Watchdog already running")
//	    return nil
//	}
//	defer singleton.Release()
//
//	pidFile := daemon.NewPidFile(cfg.WatchdogPidFile)
//	if err := pidFile.Write(os.Getpid()); err != nil {
//	    return err
//	}
//	defer pidFile.Clear()
//
// # Usage Pattern: Waiting for a Published Pid
//
//	w, err := pidFile.Watch()
//	if err == nil {
//	    defer w.Close()
//	}
//	for {
//	    if pid, ok, err := pidFile.Read(); err == nil && ok {
//	        return pid
//	    }
//	    select {
//	    case <-w.C:
//	    case <-ticker.C:
//	    }
//	}
package daemon
