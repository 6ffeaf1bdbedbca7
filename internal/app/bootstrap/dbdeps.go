package bootstrap

import "go.mongodb.org/mongo-driver/mongo"

// DBDeps is what ConnectDB hands to the later lifecycle hooks. Every store
// in the app is built from MongoDatabase; Shutdown disconnects MongoClient.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
}
