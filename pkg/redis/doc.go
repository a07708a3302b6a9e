// Package redis connects a go-redis client with retries and provides a
// health probe and key namespacing for the caches built on top of it.
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
package redis
