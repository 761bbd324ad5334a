// Package assettile generates small preview tiles for editor assets without
// blocking the host loop.
//
// # Overview
//
// A Router accepts tile requests for images, 3D models, prefabs, materials
// and shaders. Images are resized on a background worker goroutine. Models
// and prefabs are rendered offscreen by a staged pipeline that the host
// advances once per tick, spreading render, blit and read-back work over
// several frames. Materials and shaders get a static placeholder. Every tile
// is a 128×128 DDS (BC3) file named after the CRC-32 of the asset path.
//
// # Quick Start
//
//	r, err := assettile.New("tiles")
//	if err != nil {
//	    return err
//	}
//	defer r.Close()
//
//	r.SubmitFile("textures/rock.png")
//	r.SubmitFile("models/crate.msh")
//
//	for !r.Idle() {
//	    r.Tick() // Advance the pipeline, then end the renderer frame.
//	    time.Sleep(16 * time.Millisecond)
//	}
//
// # Architecture
//
// The module is organized into:
//   - Routing: Router (this package)
//   - Workers: worker (images), pipeline (models and prefabs)
//   - Codecs: dds (tile encoder and decoder), internal/resample, internal/tga
//   - Rendering: render (offscreen software renderer), scene, asset, geom
//   - Storage: cache (tile files, digest LRU, badger manifest)
//   - Surfaces: watch (fsnotify), metrics (Prometheus), config, cmd/assettile
//
// # Failure Policy
//
// A source that cannot be decoded or encoded gets the placeholder tile of
// its kind. A model or prefab that fails to load is dropped. No failure
// stops the router; failures are logged (see SetLogger) and counted.
package assettile

// Version is the current version of the module.
const Version = "0.1.0"
