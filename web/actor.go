package web

import (
	"encoding/json"

	"github.com/deemkeen/inboxd/util"
)

// InstanceKeyId is the key id signed fetches are made under.
func InstanceKeyId(conf *util.AppConfig) string {
	return InstanceActorId(conf) + "#main-key"
}

func InstanceActorId(conf *util.AppConfig) string {
	return conf.BaseURL() + "/actor"
}

// GetInstanceActor renders the Application actor peers dereference to check
// the signatures on our fetches.
func GetInstanceActor(conf *util.AppConfig, publicKeyPem string) ([]byte, error) {
	actorId := InstanceActorId(conf)

	actor := map[string]interface{}{
		"@context": []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		"id":                        actorId,
		"type":                      "Application",
		"preferredUsername":         util.Name,
		"name":                      util.GetNameAndVersion(),
		"inbox":                     conf.BaseURL() + "/inbox",
		"url":                       conf.BaseURL(),
		"manuallyApprovesFollowers": true,
		"endpoints": map[string]string{
			"sharedInbox": conf.BaseURL() + "/inbox",
		},
		"publicKey": map[string]string{
			"id":           InstanceKeyId(conf),
			"owner":        actorId,
			"publicKeyPem": publicKeyPem,
		},
	}

	return json.Marshal(actor)
}
