// Package config loads the dggchat YAML configuration.
//
// Values of the form ${VAR} are expanded from the environment before
// parsing, so credentials can stay out of the file:
//
//	chat:
//	  session_id: ${DGG_SID}
package config
